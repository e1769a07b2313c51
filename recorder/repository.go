package recorder

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"kintai/kintai"
)

var ErrNotFound = errors.New("not found")

type Repository interface {
	SaveSubject(ctx context.Context, s Subject) error
	GetSubject(ctx context.Context, id kintai.SubjectID) (Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	// DeleteSubject removes the subject together with its workdays and events.
	// It returns ErrNotFound only when none of them exist.
	DeleteSubject(ctx context.Context, id kintai.SubjectID) error

	SaveWorkday(ctx context.Context, w Workday) error
	// GetWorkday returns nil when nothing is configured for the date.
	GetWorkday(ctx context.Context, id kintai.SubjectID, date kintai.Date) (*Workday, error)

	// AppendEvent assigns ID and RecordedAt before storing e.
	AppendEvent(ctx context.Context, e *Event) error
	// DeleteEvent returns ErrNotFound when the event is not stored for the subject and date.
	DeleteEvent(ctx context.Context, id kintai.SubjectID, date kintai.Date, eventID string) error
	// ListEvents returns the events of a workday ordered by At, then by ID.
	ListEvents(ctx context.Context, id kintai.SubjectID, date kintai.Date) ([]Event, error)

	Close() error
}

// IDGenerator hands out ULIDs that sort in creation order within one process.
type IDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (g *IDGenerator) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

func sortEvents(es []Event) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].At.Equal(es[j].At) {
			return es[i].At.Before(es[j].At)
		}
		return es[i].ID < es[j].ID
	})
}

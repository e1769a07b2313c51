package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/buntdb"

	"kintai/kintai"
)

const subjectsByNameIndex = "subjects_by_name"

// NewBuntRepository wraps a database that only this process uses, such as ":memory:".
func NewBuntRepository(db *buntdb.DB) (Repository, error) {
	if err := createIndexes(db); err != nil {
		return nil, err
	}
	return &buntRepository{
		open: func() (*buntdb.DB, func() error, error) {
			return db, func() error { return nil }, nil
		},
		close: db.Close,
		ids:   NewIDGenerator(),
	}, nil
}

// NewBuntFileRepository opens the file at path for every operation, so each
// operation sees what other processes wrote before it. buntdb reads its file
// only when opening, so callers must hold a cross-process lock around every call.
func NewBuntFileRepository(path string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	r := &buntRepository{
		open: func() (*buntdb.DB, func() error, error) {
			db, err := buntdb.Open(path)
			if err != nil {
				return nil, nil, fmt.Errorf("open %s: %w", path, err)
			}
			// a background shrink would rewrite the file outside the caller's lock
			var cfg buntdb.Config
			if err := db.ReadConfig(&cfg); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			cfg.AutoShrinkDisabled = true
			if err := db.SetConfig(cfg); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			if err := createIndexes(db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			return db, db.Close, nil
		},
		close: func() error { return nil },
		ids:   NewIDGenerator(),
	}
	return r, nil
}

func createIndexes(db *buntdb.DB) error {
	err := db.CreateIndex(subjectsByNameIndex, "subject:*", buntdb.IndexJSON("name"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

type buntRepository struct {
	open  func() (*buntdb.DB, func() error, error)
	close func() error
	ids   *IDGenerator
}

func (r *buntRepository) view(fn func(tx *buntdb.Tx) error) error {
	db, done, err := r.open()
	if err != nil {
		return err
	}
	err = db.View(fn)
	if cerr := done(); err == nil {
		err = cerr
	}
	return err
}

func (r *buntRepository) update(fn func(tx *buntdb.Tx) error) error {
	db, done, err := r.open()
	if err != nil {
		return err
	}
	err = db.Update(fn)
	if cerr := done(); err == nil {
		err = cerr
	}
	return err
}

func subjectKey(id kintai.SubjectID) string {
	return fmt.Sprintf("subject:%d", id)
}

func workdayKey(id kintai.SubjectID, date kintai.Date) string {
	return fmt.Sprintf("workday:%d:%s", id, date)
}

func eventKey(id kintai.SubjectID, date kintai.Date, eventID string) string {
	return fmt.Sprintf("event:%d:%s:%s", id, date, eventID)
}

func (r *buntRepository) SaveSubject(_ context.Context, s Subject) error {
	if s.ID < 1 {
		return kintai.ErrInvalidSubject
	}
	return r.update(func(tx *buntdb.Tx) error {
		if s.CreatedAt.IsZero() {
			prev, err := tx.Get(subjectKey(s.ID))
			switch {
			case err == nil:
				var old Subject
				if err := json.Unmarshal([]byte(prev), &old); err != nil {
					return err
				}
				s.CreatedAt = old.CreatedAt
			case errors.Is(err, buntdb.ErrNotFound):
				s.CreatedAt = time.Now().UTC()
			default:
				return err
			}
		}
		bs, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(subjectKey(s.ID), string(bs), nil)
		return err
	})
}

func (r *buntRepository) GetSubject(_ context.Context, id kintai.SubjectID) (Subject, error) {
	var s Subject
	err := r.view(func(tx *buntdb.Tx) error {
		v, err := tx.Get(subjectKey(id))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(v), &s)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return Subject{}, fmt.Errorf("subject %d: %w", id, ErrNotFound)
	} else if err != nil {
		return Subject{}, err
	}
	return s, nil
}

func (r *buntRepository) ListSubjects(_ context.Context) ([]Subject, error) {
	var ss []Subject
	err := r.view(func(tx *buntdb.Tx) error {
		var iterErr error
		err := tx.Ascend(subjectsByNameIndex, func(_, v string) bool {
			var s Subject
			if iterErr = json.Unmarshal([]byte(v), &s); iterErr != nil {
				return false
			}
			ss = append(ss, s)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// DeleteSubject also removes workdays and events stored without a subject record.
func (r *buntRepository) DeleteSubject(_ context.Context, id kintai.SubjectID) error {
	found := false
	err := r.update(func(tx *buntdb.Tx) error {
		keys := []string{subjectKey(id)}
		for _, pattern := range []string{
			fmt.Sprintf("workday:%d:*", id),
			fmt.Sprintf("event:%d:*", id),
		} {
			err := tx.AscendKeys(pattern, func(k, _ string) bool {
				keys = append(keys, k)
				return true
			})
			if err != nil {
				return err
			}
		}
		for _, k := range keys {
			_, err := tx.Delete(k)
			if errors.Is(err, buntdb.ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *buntRepository) SaveWorkday(_ context.Context, w Workday) error {
	if err := w.Validate(); err != nil {
		return err
	}
	return r.update(func(tx *buntdb.Tx) error {
		bs, err := json.Marshal(w)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(workdayKey(w.SubjectID, w.Date), string(bs), nil)
		return err
	})
}

func (r *buntRepository) GetWorkday(_ context.Context, id kintai.SubjectID, date kintai.Date) (*Workday, error) {
	var w *Workday
	err := r.view(func(tx *buntdb.Tx) error {
		v, err := tx.Get(workdayKey(id, date))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		w = &Workday{}
		return json.Unmarshal([]byte(v), w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *buntRepository) AppendEvent(_ context.Context, e *Event) error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	e.At = e.At.UTC()
	e.RecordedAt = time.Now().UTC()
	e.ID = r.ids.New(e.RecordedAt)
	return r.update(func(tx *buntdb.Tx) error {
		bs, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(eventKey(e.SubjectID, e.Date, e.ID), string(bs), nil)
		return err
	})
}

func (r *buntRepository) ListEvents(_ context.Context, id kintai.SubjectID, date kintai.Date) ([]Event, error) {
	var es []Event
	err := r.view(func(tx *buntdb.Tx) error {
		var iterErr error
		err := tx.AscendKeys(eventKey(id, date, "*"), func(_, v string) bool {
			var e Event
			if iterErr = json.Unmarshal([]byte(v), &e); iterErr != nil {
				return false
			}
			es = append(es, e)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	sortEvents(es)
	return es, nil
}

func (r *buntRepository) DeleteEvent(_ context.Context, id kintai.SubjectID, date kintai.Date, eventID string) error {
	err := r.update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(eventKey(id, date, eventID))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return err
}

func (r *buntRepository) Close() error {
	return r.close()
}

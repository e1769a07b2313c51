//go:build darwin && cgo

package kintai_event

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

CGPoint getMouseLocation() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}
*/
import "C"

func systemCursor() cursorFunc {
	return func() (float64, float64) {
		loc := C.getMouseLocation()
		return float64(loc.x), float64(loc.y)
	}
}

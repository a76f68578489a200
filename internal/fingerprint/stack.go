package fingerprint

import (
	"regexp"
	"strings"
)

// Frame is one parsed stack frame.
type Frame struct {
	Function string
	Path     string
	Line     string
}

// FrameMatcher parses a single stack-trace line into a Frame. Returning
// ok=false skips the line. The matcher is pluggable so stacks from other
// runtimes can be fingerprinted with the same pipeline.
type FrameMatcher func(line string) (Frame, bool)

// v8FrameRe matches V8-style frames: "at fn (path:line:col)" and the
// anonymous form "at path:line:col".
var v8FrameRe = regexp.MustCompile(`^\s*at\s+(?:(.+?)\s+\()?(.+?):(\d+):\d+\)?\s*$`)

// V8FrameMatcher parses V8/Node.js stack-trace lines. This is the default.
func V8FrameMatcher(line string) (Frame, bool) {
	m := v8FrameRe.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, false
	}
	fn := m[1]
	if fn == "" {
		fn = "<anonymous>"
	}
	return Frame{Function: fn, Path: m[2], Line: m[3]}, true
}

// libraryPathMarkers identify frames inside dependencies or the runtime,
// which are unstable across versions and never useful for grouping.
var libraryPathMarkers = []string{
	"node_modules",
	"node:internal",
	"internal/process",
	"internal/modules",
	"internal/timers",
}

func isLibraryFrame(f Frame) bool {
	for _, marker := range libraryPathMarkers {
		if strings.Contains(f.Path, marker) {
			return true
		}
	}
	return false
}

// relativePath trims a frame path to its last three segments so fingerprints
// don't depend on the deployment's absolute working directory.
func relativePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	segments := strings.Split(path, "/")
	if len(segments) > 3 {
		segments = segments[len(segments)-3:]
	}
	return strings.Join(segments, "/")
}

// ExtractStableFrames extracts up to max application frames from a stack
// trace using the default frame matcher, each formatted "fn@path:line".
func ExtractStableFrames(stackTrace string, max int) []string {
	return ExtractStableFramesWith(stackTrace, max, V8FrameMatcher)
}

// ExtractStableFramesWith is ExtractStableFrames with an explicit matcher.
func ExtractStableFramesWith(stackTrace string, max int, match FrameMatcher) []string {
	if stackTrace == "" || max <= 0 {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(stackTrace, "\n") {
		f, ok := match(line)
		if !ok || isLibraryFrame(f) {
			continue
		}
		frames = append(frames, f.Function+"@"+relativePath(f.Path)+":"+f.Line)
		if len(frames) >= max {
			break
		}
	}
	return frames
}

// Source returns the first stable frame of a stack trace, used as the
// human-readable origin of an error. Empty when no application frame exists.
func Source(stackTrace string) string {
	frames := ExtractStableFrames(stackTrace, 1)
	if len(frames) == 0 {
		return ""
	}
	return frames[0]
}

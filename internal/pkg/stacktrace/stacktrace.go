package stacktrace

import "strings"

// InternalPaths returns the "internal/..." file:line frames of a raw stack trace.
//
// Frames outside the module's internal tree (runtime, third-party) are dropped so
// panic logs stay short.
func InternalPaths(stack []byte) []string {
	lines := strings.Split(string(stack), "\n")
	paths := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "/internal/") {
			continue
		}

		idx := strings.Index(line, ".go:")
		if idx == -1 {
			continue
		}

		end := strings.IndexByte(line[idx:], ' ')
		if end == -1 {
			end = len(line)
		} else {
			end += idx
		}

		frame := line[:end]
		if i := strings.Index(frame, "/internal/"); i != -1 {
			paths = append(paths, frame[i+1:])
		}
	}
	return paths
}

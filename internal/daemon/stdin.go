package daemon

import "github.com/acomagu/bufpipe"

// openStdin returns both halves of the stdin stream for a frame, or nils when
// the frame has no payload. The stream is primed with initial and already at
// EOF when expected bytes are all present. Writes never block.
func openStdin(initial []byte, hasPayload bool, expected int) (*bufpipe.PipeReader, *bufpipe.PipeWriter) {
	if !hasPayload || expected <= 0 {
		return nil, nil
	}
	r, w := bufpipe.New(append([]byte(nil), initial...))
	if len(initial) >= expected {
		_ = w.Close()
	}
	return r, w
}

package engine

import "io"

// readBlock reads up to blockSize bytes from r. It returns data == nil
// only when r was already at EOF with nothing left to read (the
// zero-block / exact-multiple termination case); otherwise it returns
// the bytes actually read (which may be shorter than blockSize for a
// final partial block) and eof=true when the stream is exhausted.
func readBlock(r io.Reader, blockSize int) (data []byte, eof bool, err error) {
	buf := make([]byte, blockSize)
	n, rerr := io.ReadFull(r, buf)
	switch {
	case rerr == nil:
		return buf, false, nil
	case rerr == io.ErrUnexpectedEOF:
		return buf[:n], true, nil
	case rerr == io.EOF:
		return nil, true, nil
	default:
		return nil, false, rerr
	}
}

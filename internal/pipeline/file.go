package pipeline

import "io"

// FilePipe is a terminal Pipe writing to an io.Writer. No transform.
type FilePipe struct {
	w io.Writer
}

// NewFilePipe wraps w as a terminal pipe.
func NewFilePipe(w io.Writer) *FilePipe {
	return &FilePipe{w: w}
}

func (p *FilePipe) Put(buf []byte) (int, error) {
	return p.w.Write(buf)
}

// Flush is a no-op; FilePipe has no internal buffer.
func (p *FilePipe) Flush() (int, error) {
	return 0, nil
}

// FileStraw is a terminal Straw reading from an io.Reader. No transform.
type FileStraw struct {
	r io.Reader
}

// NewFileStraw wraps r as a terminal straw.
func NewFileStraw(r io.Reader) *FileStraw {
	return &FileStraw{r: r}
}

func (s *FileStraw) Get(buf []byte) (int, error) {
	n, err := s.r.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

package generator

import "context"

// Stub is a canned Generator for dev mode and tests.
type Stub struct {
	Image  []byte
	Tokens int
	Err    error

	// Calls counts Generate invocations; admission-rejected requests must
	// never reach the collaborator and tests assert on this.
	Calls int
}

func (s *Stub) Generate(ctx context.Context, productImage, personImage []byte) (*Result, error) {
	s.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	image := s.Image
	if image == nil {
		image = []byte("\x89PNG\r\n\x1a\nstub")
	}
	tokens := s.Tokens
	if tokens == 0 {
		tokens = 1
	}
	return &Result{Image: image, UsedTokens: tokens}, nil
}

//go:build !linux

package gpio

import "errors"

// ChipProvider is not available on non-Linux platforms.
type ChipProvider struct{}

// NewChipProvider returns a provider whose requests fail on non-Linux platforms.
func NewChipProvider() *ChipProvider {
	return &ChipProvider{}
}

// Request is not implemented on non-Linux platforms.
func (p *ChipProvider) Request(req Request) (Line, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (p *ChipProvider) Close() error {
	return nil
}

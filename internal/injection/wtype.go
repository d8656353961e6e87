package injection

import (
	"context"
	"fmt"
	"time"
)

type wtypeBackend struct{}

func NewWtypeBackend() Backend {
	return &wtypeBackend{}
}

func (w *wtypeBackend) Name() string {
	return "wtype"
}

func (w *wtypeBackend) Available() error {
	if _, err := lookPath("wtype"); err != nil {
		return fmt.Errorf("wtype not found: %w (install wtype package)", err)
	}
	return nil
}

func (w *wtypeBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	return run(ctx, timeout, "wtype", "--", text)
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check run before the harness touches anything.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Preflight runs every check concurrently, each bounded by timeout, and joins the failures.
func Preflight(ctx context.Context, timeout time.Duration, checks ...ReadyCheck) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	errs := make([]error, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		if check.Check == nil {
			continue
		}
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := check.Check(checkCtx); err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

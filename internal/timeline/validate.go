package timeline

import (
	"errors"
	"fmt"
)

// Validate checks that object ids are unique across the forest and that every
// reference resolves to an object of the same timeline. All problems are
// reported together.
func Validate(tl *Timeline) error {
	if tl == nil {
		return nil
	}

	ids := make(map[string]struct{})
	var errs []error
	for _, g := range tl.Groups {
		g.Walk(func(o *Object) {
			if _, dup := ids[o.ID]; dup {
				errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateID, o.ID))
				return
			}
			ids[o.ID] = struct{}{}
		})
	}

	for _, g := range tl.Groups {
		g.Walk(func(o *Object) {
			c := &refCollector{}
			for _, t := range []Time{o.Enable.Start, o.Enable.End, o.Enable.Duration, o.Enable.While} {
				if t != nil {
					t.Accept(c)
				}
			}
			for _, target := range c.targets {
				if _, ok := ids[target]; !ok {
					errs = append(errs, fmt.Errorf("%w: %q referenced by %q", ErrUnresolvedReference, target, o.ID))
				}
			}
			if o.InGroup != "" {
				if _, ok := ids[o.InGroup]; !ok {
					errs = append(errs, fmt.Errorf("%w: parent %q of %q", ErrUnresolvedReference, o.InGroup, o.ID))
				}
			}
		})
	}

	return errors.Join(errs...)
}

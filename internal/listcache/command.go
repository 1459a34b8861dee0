package listcache

import (
	"context"
	"slices"

	"github.com/yakoovad/people-drive/internal/model"
)

type Action string

const (
	ActionLoad      Action = "load"
	ActionSetStatus Action = "set_status"
	ActionRemove    Action = "remove"
)

// Command is one optimistic mutation. Before and Index are captured by the
// cache right before Apply runs; Rollback undoes exactly that change.
type Command struct {
	Action Action
	ID     string

	Before *model.Application
	Index  int

	Apply    func(list []*model.Application) []*model.Application
	Rollback func(list []*model.Application) []*model.Application
	Run      func(ctx context.Context) error
	OnSettle func(err error)
}

func indexOf(list []*model.Application, id string) int {
	return slices.IndexFunc(list, func(a *model.Application) bool { return a.ID == id })
}

func newSetStatusCommand(src Source, id string, status model.Status) *Command {
	cmd := &Command{Action: ActionSetStatus, ID: id}

	cmd.Apply = func(list []*model.Application) []*model.Application {
		return withStatus(list, id, status)
	}
	cmd.Rollback = func(list []*model.Application) []*model.Application {
		return withStatus(list, id, cmd.Before.Status)
	}
	cmd.Run = func(ctx context.Context) error {
		return src.SetStatus(ctx, id, status)
	}
	return cmd
}

func newRemoveCommand(src Source, id string) *Command {
	cmd := &Command{Action: ActionRemove, ID: id}

	cmd.Apply = func(list []*model.Application) []*model.Application {
		return slices.DeleteFunc(slices.Clone(list), func(a *model.Application) bool { return a.ID == id })
	}
	cmd.Rollback = func(list []*model.Application) []*model.Application {
		if indexOf(list, id) >= 0 {
			return list
		}
		at := min(cmd.Index, len(list))
		return slices.Insert(slices.Clone(list), at, cmd.Before.Clone())
	}
	cmd.Run = func(ctx context.Context) error {
		return src.Delete(ctx, id)
	}
	return cmd
}

// withStatus returns a copy of list where record id carries status. The
// record itself is replaced, never modified in place.
func withStatus(list []*model.Application, id string, status model.Status) []*model.Application {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}

	out := slices.Clone(list)
	rec := out[i].Clone()
	rec.Status = status
	out[i] = rec
	return out
}

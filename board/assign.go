package board

import (
	"context"
	"fmt"
	"sort"

	"board-api/domain"
)

// SmartAssign assigns the task to the least-loaded user: the one holding the
// fewest tasks whose status is not Done. Load is recomputed from the current
// snapshot on every call; ties break on ascending email then id, so repeated
// calls against an unchanged board always pick the same user.
func (g *Gateway) SmartAssign(ctx context.Context, actor domain.User, id string) (domain.Task, error) {
	current, err := g.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if current == nil {
		return domain.Task{}, ErrNotFound
	}
	if err := g.store.EnsureUser(ctx, actor); err != nil {
		return domain.Task{}, fmt.Errorf("ensure user: %w", err)
	}
	users, err := g.store.ListUsers(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return domain.Task{}, ErrNoEligibleUser
	}
	snapshot, err := g.store.FetchBoard(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("fetch board: %w", err)
	}

	selected := leastLoaded(users, snapshot, current.ID)
	task := *current
	task.AssignedUser = &selected
	task.LastModified = nextStamp()
	if err := g.store.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := g.finish(ctx, actor, fmt.Sprintf("assigned %s to %s", task.Title, selected.Email)); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// leastLoaded picks the user with the fewest active assigned tasks. The task
// being assigned is excluded from the tally so repeated calls against an
// otherwise unchanged board select the same user. Users is never empty here.
func leastLoaded(users []domain.User, snapshot domain.BoardState, taskID string) domain.User {
	counts := make(map[string]int, len(users))
	for _, t := range snapshot.Tasks() {
		if t.ID == taskID || t.AssignedUser == nil || !t.Active() {
			continue
		}
		counts[t.AssignedUser.ID]++
	}

	candidates := make([]domain.User, len(users))
	copy(candidates, users)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Email != candidates[j].Email {
			return candidates[i].Email < candidates[j].Email
		}
		return candidates[i].ID < candidates[j].ID
	})

	best := candidates[0]
	for _, u := range candidates[1:] {
		if counts[u.ID] < counts[best.ID] {
			best = u
		}
	}
	return best
}

package storage

import (
	"fmt"
	"math"
	"time"

	"board-api/domain"
)

// Entity carries the base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

const edmInt64 = "Edm.Int64"

// taskEntity is a task row in the tasks table. Timestamps are stored as
// unix-nano Edm.Int64 values.
type taskEntity struct {
	Entity
	Title             string `json:"Title"`
	Description       string `json:"Description"`
	Priority          string `json:"Priority"`
	Status            string `json:"Status"`
	AssignedUserID    string `json:"AssignedUserId,omitempty"`
	AssignedUserEmail string `json:"AssignedUserEmail,omitempty"`
	CreatedAt         int64  `json:"CreatedAt,string"`
	CreatedAtType     string `json:"CreatedAt@odata.type"`
	LastModified      int64  `json:"LastModified,string"`
	LastModifiedType  string `json:"LastModified@odata.type"`
}

func newTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:           Entity{PartitionKey: boardPartition, RowKey: t.ID},
		Title:            t.Title,
		Description:      t.Description,
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt.UnixNano(),
		CreatedAtType:    edmInt64,
		LastModified:     t.LastModified.UnixNano(),
		LastModifiedType: edmInt64,
	}
	if t.AssignedUser != nil {
		ent.AssignedUserID = t.AssignedUser.ID
		ent.AssignedUserEmail = t.AssignedUser.Email
	}
	return ent
}

func (e taskEntity) task() domain.Task {
	t := domain.Task{
		ID:           e.RowKey,
		Title:        e.Title,
		Description:  e.Description,
		Priority:     domain.Priority(e.Priority),
		Status:       domain.Status(e.Status),
		CreatedAt:    time.Unix(0, e.CreatedAt).UTC(),
		LastModified: time.Unix(0, e.LastModified).UTC(),
	}
	if e.AssignedUserID != "" {
		t.AssignedUser = &domain.User{ID: e.AssignedUserID, Email: e.AssignedUserEmail}
	}
	return t
}

// userEntity is a user row in the users table.
type userEntity struct {
	Entity
	Email string `json:"Email"`
}

func newUserEntity(u domain.User) userEntity {
	return userEntity{
		Entity: Entity{PartitionKey: userPartition, RowKey: u.ID},
		Email:  u.Email,
	}
}

func (e userEntity) user() domain.User {
	return domain.User{ID: e.RowKey, Email: e.Email}
}

// activityEntity is one immutable activity row. The row key embeds the
// inverted timestamp so lexicographic listing returns newest entries first.
type activityEntity struct {
	Entity
	EntryID       string `json:"EntryId"`
	User          string `json:"User"`
	Action        string `json:"Action"`
	Timestamp     int64  `json:"Timestamp,string"`
	TimestampType string `json:"Timestamp@odata.type"`
}

func newActivityEntity(e domain.ActivityLogEntry) activityEntity {
	ts := e.Timestamp.UnixNano()
	return activityEntity{
		Entity:        Entity{PartitionKey: activityPartition, RowKey: activityRowKey(ts, e.ID)},
		EntryID:       e.ID,
		User:          e.User,
		Action:        e.Action,
		Timestamp:     ts,
		TimestampType: edmInt64,
	}
}

func (e activityEntity) entry() domain.ActivityLogEntry {
	return domain.ActivityLogEntry{
		ID:        e.EntryID,
		User:      e.User,
		Action:    e.Action,
		Timestamp: time.Unix(0, e.Timestamp).UTC(),
	}
}

func activityRowKey(ts int64, id string) string {
	return fmt.Sprintf("%020d-%s", math.MaxInt64-ts, id)
}

package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type PresenceMember struct {
	ParticipantID string
	DisplayName   string
	Role          string
}

// PresenceCache is the server-side room membership store. Members carry a
// heartbeat TTL; an entry whose heartbeat expired is treated as gone even if
// it still sits in the room set.
type PresenceCache interface {
	AddMember(ctx context.Context, docID, participantID, displayName, role string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID, participantID string) error
	SetRole(ctx context.Context, docID, participantID, role string) error
	GetAliveMembers(ctx context.Context, docID string) ([]PresenceMember, error)
	SetCursor(ctx context.Context, docID, participantID string, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, docID, participantID string) ([]byte, error)
}

type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) AddMember(ctx context.Context, docID, participantID, displayName, role string, ttl time.Duration) error {
	pipe := p.rdb.Pipeline()
	pipe.SAdd(ctx, roomKey(docID), participantID)
	pipe.Set(ctx, memberKey(docID, participantID), "1", ttl)
	pipe.HSet(ctx, namesKey(docID), participantID, displayName)
	if role != "" {
		pipe.HSet(ctx, rolesKey(docID), participantID, role)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID, participantID string) error {
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, roomKey(docID), participantID)
	pipe.Del(ctx, memberKey(docID, participantID))
	pipe.HDel(ctx, namesKey(docID), participantID)
	pipe.HDel(ctx, rolesKey(docID), participantID)
	pipe.Del(ctx, cursorKey(docID, participantID))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPresence) SetRole(ctx context.Context, docID, participantID, role string) error {
	return p.rdb.HSet(ctx, rolesKey(docID), participantID, role).Err()
}

func (p *redisPresence) GetAliveMembers(ctx context.Context, docID string) ([]PresenceMember, error) {
	ids, err := p.rdb.SMembers(ctx, roomKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// heartbeat check: a member whose TTL key expired is not alive
	existsCmds := make([]*redis.IntCmd, 0, len(ids))
	pipe := p.rdb.Pipeline()
	for _, id := range ids {
		existsCmds = append(existsCmds, pipe.Exists(ctx, memberKey(docID, id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	alive := make([]string, 0, len(ids))
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			alive = append(alive, ids[i])
		}
	}
	if len(alive) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(docID), alive...).Result()
	if err != nil {
		return nil, err
	}
	roles, err := p.rdb.HMGet(ctx, rolesKey(docID), alive...).Result()
	if err != nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(alive))
	for i, id := range alive {
		m := PresenceMember{ParticipantID: id}
		if v, ok := names[i].(string); ok {
			m.DisplayName = v
		}
		if v, ok := roles[i].(string); ok {
			m.Role = v
		}
		members = append(members, m)
	}
	return members, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, docID, participantID string, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(docID, participantID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, docID, participantID string) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(docID, participantID)).Bytes()
}

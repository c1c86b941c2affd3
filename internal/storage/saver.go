package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CollisionPolicy decides what happens when a key is already taken.
type CollisionPolicy string

const (
	// CollisionSuffix keeps the existing object and stores the new one under
	// a timestamped name.
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionOverwrite replaces the existing object (last write wins).
	CollisionOverwrite CollisionPolicy = "overwrite"
)

// ParseCollisionPolicy accepts "suffix" or "overwrite".
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case CollisionSuffix, "":
		return CollisionSuffix, nil
	case CollisionOverwrite:
		return CollisionOverwrite, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", s)
	}
}

const maxSuffixAttempts = 100

// Saver writes objects to a Backend under a collision policy.
type Saver struct {
	Backend Backend
	Policy  CollisionPolicy
	// Now is used to build suffixes; defaults to time.Now.
	Now func() time.Time
}

// Save stores r under name, or under a suffixed variant of name when the
// policy is CollisionSuffix and name is taken. The returned Info.Name is the
// key actually written.
func (s *Saver) Save(ctx context.Context, name string, r io.Reader, contentType string) (Info, error) {
	if s.Policy == CollisionOverwrite {
		return s.Backend.Put(ctx, name, r, PutOptions{ContentType: contentType})
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stamp := strconv.FormatInt(now().UnixMilli(), 10)

	candidate := name
	for attempt := 0; attempt < maxSuffixAttempts; attempt++ {
		info, err := s.Backend.Put(ctx, candidate, r, PutOptions{Exclusive: true, ContentType: contentType})
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrExists) {
			return Info{}, err
		}
		insert := stamp
		if attempt > 0 {
			insert = stamp + "-" + strconv.Itoa(attempt)
		}
		candidate = InsertBeforeExt(name, insert)
	}
	return Info{}, fmt.Errorf("no free name for %s after %d attempts: %w", name, maxSuffixAttempts, ErrExists)
}

// InsertBeforeExt returns name with insert placed before its extension:
// ("photo.jpg", "thumb") -> "photo.thumb.jpg", ("notes", "1") -> "notes.1".
func InsertBeforeExt(name, insert string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name + "." + insert
	}
	return name[:i] + "." + insert + name[i:]
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/redis/go-redis/v9"
)

const regionKeyPrefix = "gridfn:region:"

func regionKey(name string) string {
	return regionKeyPrefix + name
}

func membersKey(name string) string {
	return regionKeyPrefix + name + ":members"
}

// Redis reads region definitions shared by every member of the cluster.
// Each region is a hash (topology, buckets, path) plus a member set.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger.With("module", "redis_catalog")}
}

// NewRedisFromURL parses a redis:// URL.
func NewRedisFromURL(url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewRedis(redis.NewClient(opts), logger), nil
}

// nolint:ireturn // satisfies protocol.RegionLookup
func (r *Redis) Region(ctx context.Context, name string) (protocol.Region, error) {
	fields, err := r.client.HGetAll(ctx, regionKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read region %s: %w", name, err)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", protocol.ErrRegionNotFound, name)
	}

	members, err := r.client.SMembers(ctx, membersKey(name)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read members of region %s: %w", name, err)
	}

	slices.Sort(members)

	spec := RegionSpec{
		Name:     name,
		Path:     fields["path"],
		Topology: fields["topology"],
		Members:  members,
	}

	if b := fields["buckets"]; b != "" {
		spec.Buckets, err = strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s has bucket count %q", ErrInvalidRegion, name, b)
		}
	}

	region, err := NewRegion(spec)
	if err != nil {
		return nil, err
	}

	return region, nil
}

// Put stores spec, replacing any previous definition.
func (r *Redis) Put(ctx context.Context, spec RegionSpec) error {
	region, err := NewRegion(spec)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, regionKey(spec.Name), membersKey(spec.Name))
		pipe.HSet(ctx, regionKey(spec.Name),
			"topology", region.Topology().String(),
			"buckets", strconv.Itoa(region.BucketCount()),
			"path", region.FullPath(),
		)

		if len(spec.Members) > 0 {
			members := make([]any, len(spec.Members))
			for i, m := range spec.Members {
				members[i] = m
			}

			pipe.SAdd(ctx, membersKey(spec.Name), members...)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store region %s: %w", spec.Name, err)
	}

	r.logger.Info("Region stored", "region", spec.Name)

	return nil
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	err := r.client.Del(ctx, regionKey(name), membersKey(name)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete region %s: %w", name, err)
	}

	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

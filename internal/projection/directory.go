package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

// ListGroups lists every group the registry reports for who, in registry
// order. A group whose info cannot be read is listed as UnresolvedGroup.
func (l Loader) ListGroups(ctx context.Context, reg chain.Registry, who common.Address) (groups []models.GroupSummary, err error) {
	started := time.Now()
	defer func() { l.Metrics.ObserveProjection(NameDirectory, started, codeOf(err)) }()

	addrs, err := reg.GetUserGroups(ctx, who)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDirectoryUnavailable, "failed to read group registry", err)
	}

	groups = make([]models.GroupSummary, len(addrs))

	var g errgroup.Group
	g.SetLimit(l.limit())
	for i, addr := range addrs {
		g.Go(func() error {
			info, err := reg.GetGroupInfo(ctx, addr)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("Failed to resolve group info", "group", addr.Hex(), "error", err)
					l.Metrics.SkippedItem(NameDirectory)
				}
				groups[i] = models.UnresolvedGroup(addr)
				return nil
			}
			groups[i] = summarize(addr, info)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDirectoryUnavailable, "group listing interrupted", err)
	}
	return groups, nil
}

func summarize(addr common.Address, info chain.GroupInfo) models.GroupSummary {
	var createdAt int64
	if info.CreatedAt != nil && info.CreatedAt.IsInt64() {
		createdAt = info.CreatedAt.Int64()
	}
	members := info.Members
	if members == nil {
		members = []common.Address{}
	}
	return models.GroupSummary{
		Address:   addr,
		Creator:   info.Creator,
		CreatedAt: createdAt,
		Members:   members,
		Resolved:  true,
	}
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return string(apperrors.GetCode(err))
}

package xwin

import (
	"context"
	"fmt"

	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// xfixesMajor/Minor is the protocol version negotiated before the first
// region request; the extension rejects clients that skip the handshake.
const (
	xfixesMajor = 5
	xfixesMinor = 0
)

// Region is a server-side clip region managed by the XFIXES extension.
type Region struct {
	r  *Registry
	id xfixes.Region
}

func (r *Registry) initXFixes(ctx context.Context) error {
	r.xfixesOnce.Do(func() {
		xc, err := r.wire()
		if err != nil {
			r.xfixesErr = err
			return
		}
		if err := xfixes.Init(xc); err != nil {
			r.xfixesErr = fmt.Errorf("failed to init xfixes: %w", err)
			return
		}
		ck := xfixes.QueryVersion(xc, xfixesMajor, xfixesMinor)
		if _, err := r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() }); err != nil {
			r.xfixesErr = fmt.Errorf("failed to negotiate xfixes version: %w", err)
		}
	})
	return r.xfixesErr
}

// CreateRegion builds a region covering the union of the given rectangles;
// none makes an empty region.
func (r *Registry) CreateRegion(ctx context.Context, rects ...xproto.Rectangle) (*Region, error) {
	if err := r.initXFixes(ctx); err != nil {
		return nil, err
	}
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	id, err := xfixes.NewRegionId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate region id: %w", err)
	}
	ck := xfixes.CreateRegionChecked(xc, id, rects)
	if err := r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return nil, fmt.Errorf("failed to create region: %w", err)
	}
	return &Region{r: r, id: id}, nil
}

// ID returns the server-assigned region id.
func (re *Region) ID() xfixes.Region { return re.id }

// Destroy releases the server-side region.
func (re *Region) Destroy(ctx context.Context) error {
	xc, err := re.r.wire()
	if err != nil {
		return err
	}
	ck := xfixes.DestroyRegionChecked(xc, re.id)
	if err := re.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to destroy region: %w", err)
	}
	return nil
}

// Union grows the region to cover other as well.
func (re *Region) Union(ctx context.Context, other *Region) error {
	xc, err := re.r.wire()
	if err != nil {
		return err
	}
	ck := xfixes.UnionRegionChecked(xc, re.id, other.id, re.id)
	if err := re.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to union regions: %w", err)
	}
	return nil
}

// Intersect shrinks the region to the area shared with other.
func (re *Region) Intersect(ctx context.Context, other *Region) error {
	xc, err := re.r.wire()
	if err != nil {
		return err
	}
	ck := xfixes.IntersectRegionChecked(xc, re.id, other.id, re.id)
	if err := re.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to intersect regions: %w", err)
	}
	return nil
}

// Subtract removes other's area from the region.
func (re *Region) Subtract(ctx context.Context, other *Region) error {
	xc, err := re.r.wire()
	if err != nil {
		return err
	}
	ck := xfixes.SubtractRegionChecked(xc, re.id, other.id, re.id)
	if err := re.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to subtract regions: %w", err)
	}
	return nil
}

// Translate shifts the region by dx, dy.
func (re *Region) Translate(ctx context.Context, dx, dy int) error {
	xc, err := re.r.wire()
	if err != nil {
		return err
	}
	ck := xfixes.TranslateRegionChecked(xc, re.id, int16(dx), int16(dy))
	if err := re.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to translate region: %w", err)
	}
	return nil
}

// Rects fetches the region's current rectangle decomposition.
func (re *Region) Rects(ctx context.Context) ([]xproto.Rectangle, error) {
	xc, err := re.r.wire()
	if err != nil {
		return nil, err
	}
	ck := xfixes.FetchRegion(xc, re.id)
	v, err := re.r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return nil, fmt.Errorf("failed to fetch region: %w", err)
	}
	return v.(*xfixes.FetchRegionReply).Rectangles, nil
}

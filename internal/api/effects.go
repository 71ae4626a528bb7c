package api

import (
	"context"
	"log/slog"

	"github.com/erazemk/bazar/internal/cache"
	"github.com/erazemk/bazar/internal/events"
	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/store"
)

// effects runs the after-commit side effects of order operations: event
// publication and listing cache invalidation. Neither can fail the request.
type effects struct {
	Events events.Publisher
	Cache  *cache.Listings
}

func (fx *effects) publish(ctx context.Context, e events.Envelope, err error) {
	if err != nil {
		slog.ErrorContext(ctx, "building event", "error", err)
		return
	}
	fx.Events.Publish(ctx, e)
}

func (fx *effects) placed(ctx context.Context, p *store.PlacedOrder) {
	o := p.Order
	slog.InfoContext(ctx, "order placed",
		"order", o.ID, "transaction", o.TransactionID, "item", o.ItemID,
		"buyer", o.BuyerID, "seller", o.SellerID, "resumed", p.Resumed)
	e, err := events.OrderCreated(o, p.Resumed)
	fx.publish(ctx, e, err)
	fx.Cache.Invalidate(ctx)
}

func (fx *effects) delivered(ctx context.Context, d *store.Delivery) {
	o := d.Order
	slog.InfoContext(ctx, "order delivered",
		"order", o.ID, "transaction", o.TransactionID, "item", o.ItemID,
		"buyer", o.BuyerID, "seller", o.SellerID)
	e, err := events.OrderDelivered(o)
	fx.publish(ctx, e, err)
	for _, id := range d.CancelledOrderIDs {
		slog.InfoContext(ctx, "order cancelled", "order", id, "item", o.ItemID, "reason", model.CancelReasonSoldElsewhere)
		e, err := events.OrderCancelled(id, o.ItemID, model.CancelReasonSoldElsewhere)
		fx.publish(ctx, e, err)
	}
	fx.Cache.Invalidate(ctx)
}

func (fx *effects) cancelled(ctx context.Context, o *model.Order) {
	slog.InfoContext(ctx, "order cancelled", "order", o.ID, "item", o.ItemID, "reason", o.CancelReason)
	e, err := events.OrderCancelled(o.ID, o.ItemID, o.CancelReason)
	fx.publish(ctx, e, err)
	fx.Cache.Invalidate(ctx)
}

func (fx *effects) regenerated(ctx context.Context, issued *store.IssuedOTP) {
	slog.InfoContext(ctx, "otp regenerated", "order", issued.Order.ID, "buyer", issued.Order.BuyerID)
	e, err := events.OTPRegenerated(issued.Order.ID, issued.ExpiresAt)
	fx.publish(ctx, e, err)
}

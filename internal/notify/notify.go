// Package notify delivers order events to customers and admins. Delivery is
// best-effort by contract: the order flow ignores returned errors, so a dead
// chat gateway can never fail a checkout.
package notify

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatshop-io/chatshop/internal/domain/order"
)

// Sender pushes one text message to one chat identity. The chat-platform
// gateway implements this; tests and local runs use LogSender.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// LogSender writes messages to the log instead of a chat platform.
func LogSender() Sender {
	return SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		zctx.From(ctx).Info("Notification",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
		)
		return nil
	})
}

var _ order.Notifier = (*Notifier)(nil)

// Notifier formats order events and fans them out: the customer gets one
// message, admin events go to every configured admin chat.
type Notifier struct {
	sender Sender
	admins []int64
}

// New creates a Notifier delivering through sender. admins are the chat IDs
// that receive new-order events.
func New(sender Sender, admins []int64) *Notifier {
	return &Notifier{sender: sender, admins: admins}
}

func (n *Notifier) OrderCreated(ctx context.Context, o *order.Order) error {
	text := fmt.Sprintf("Заказ %s оформлен. Сумма к оплате: %s ₽.", o.Number, o.Total.StringFixed(2))
	return n.send(ctx, o.UserID, text)
}

func (n *Notifier) StatusChanged(ctx context.Context, o *order.Order) error {
	text := fmt.Sprintf("Статус заказа %s изменён: %s.", o.Number, statusText(o.Status))
	return n.send(ctx, o.UserID, text)
}

func (n *Notifier) PaymentSucceeded(ctx context.Context, o *order.Order) error {
	text := fmt.Sprintf("Оплата заказа %s на сумму %s ₽ получена.", o.Number, o.Total.StringFixed(2))
	return n.send(ctx, o.UserID, text)
}

// AdminNewOrder sends one message per configured admin. Sends run
// concurrently; the first failure is reported but the rest still go out.
func (n *Notifier) AdminNewOrder(ctx context.Context, o *order.Order) error {
	text := fmt.Sprintf("Новый заказ %s от пользователя %d на сумму %s ₽.",
		o.Number, o.UserID, o.Total.StringFixed(2))

	var g errgroup.Group
	for _, admin := range n.admins {
		g.Go(func() error {
			return n.send(ctx, admin, text)
		})
	}
	return g.Wait()
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string) error {
	if err := n.sender.Send(ctx, chatID, text); err != nil {
		return errors.Wrapf(err, "send to chat %d", chatID)
	}
	return nil
}

func statusText(s order.Status) string {
	switch s {
	case order.StatusCreated:
		return "создан"
	case order.StatusConfirmed:
		return "подтверждён"
	case order.StatusPaid:
		return "оплачен"
	case order.StatusShipped:
		return "отправлен"
	case order.StatusDelivered:
		return "доставлен"
	case order.StatusCancelled:
		return "отменён"
	default:
		return string(s)
	}
}

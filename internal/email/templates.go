package email

import (
	"fmt"
	"strings"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// BuildOrderLockedBody builds the HTML body for the order-locked email.
func BuildOrderLockedBody(o *order.Order) string {
	return wrap("Your group order is locked", fmt.Sprintf(`
		<p style="margin-top: 0;">The group order below reached its minimum quantity and is now locked for fulfillment. No further joins or leaves are possible.</p>
		%s
		<p>Please complete your payment if you have not done so yet.</p>`,
		orderCard(o)))
}

// BuildOrderCompletedBody builds the HTML body for the order-completed email.
func BuildOrderCompletedBody(o *order.Order) string {
	delivery := "to be announced"
	if o.DeliveryTime != nil {
		delivery = o.DeliveryTime.Format("Mon, 02 Jan 2006 15:04")
	}
	return wrap("Your group order is completed", fmt.Sprintf(`
		<p style="margin-top: 0;">The group order below has been completed by the organizer.</p>
		%s
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Delivery</p>
			<p style="margin: 5px 0 0 0; font-size: 16px; font-weight: bold;">%s</p>
		</div>`,
		orderCard(o), delivery))
}

func orderCard(o *order.Order) string {
	var sb strings.Builder
	sb.WriteString(`<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">`)
	sb.WriteString(fmt.Sprintf(`<p style="margin: 0; font-size: 18px; font-weight: bold;">%s</p>`, o.ItemName))
	sb.WriteString(fmt.Sprintf(`<p style="margin: 5px 0 0 0; font-size: 14px; color: #666;">%g %s pooled of %g %s &middot; %.2f per %s</p>`,
		o.CurrentQuantity, o.Unit, o.TotalQuantity, o.Unit, o.PricePerUnit, o.Unit))
	sb.WriteString(fmt.Sprintf(`<p style="margin: 5px 0 0 0; font-size: 14px; color: #666;">%s, %s</p>`,
		o.Location.Area, o.Location.City))
	sb.WriteString(fmt.Sprintf(`<p style="margin: 5px 0 0 0; font-size: 12px; color: #999; font-family: monospace;">%s</p>`, o.ID))
	sb.WriteString(`</div>`)
	return sb.String()
}

func wrap(heading, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #2f855a 0%%, #276749 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		%s
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">You received this mail because you participate in a GroShare group order.</p>
	</div>
</body>
</html>`, heading, content)
}

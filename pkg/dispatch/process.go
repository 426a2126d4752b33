package dispatch

import (
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/wire"
)

// process runs one event to completion on the worker.
func (d *Dispatcher) process(ev resource.Event) {
	defer d.processed.Add(1)

	if !d.refreshedOnce || ev.Kind == resource.KindSubscription {
		d.refreshedOnce = true
		d.refreshes.Add(1)
		// Failures are logged by the registry; the last good generation
		// stays in effect.
		_ = d.config.Registry.Refresh(d.ctx)
	}

	if ev.Operation == resource.OpDelete || ev.Resource == nil {
		return
	}

	candidates := d.config.Registry.Candidates(ev.Kind)
	for _, e := range candidates {
		inc, err := e.Matcher.Resolve(d.ctx, ev.Resource, d.config.Resolver)
		if err != nil {
			d.logger.Warn("reference resolution failed, skipping subscription",
				"subscription_id", e.Subscription.IDPart(),
				"resource", ev.Reference().String(),
				"error", err)
			continue
		}
		if !e.Matcher.Matches(ev.Resource, inc) {
			continue
		}
		d.deliver(ev, e.Subscription)
	}
}

// deliver sends ev to the authorized sessions bound to sub.
func (d *Dispatcher) deliver(ev resource.Event, sub *resource.Subscription) {
	idPart := sub.IDPart()
	recipients := d.config.Binder.Recipients(idPart)
	if len(recipients) == 0 {
		return
	}
	ref := ev.Reference().String()

	rule := d.config.Rules.For(ev.Kind)
	if rule == nil {
		d.denied.Add(uint64(len(recipients)))
		d.logger.Warn("no authorization rule for resource type, denying all",
			"resource", ref,
			"subscription_id", idPart,
			"recipients", len(recipients))
		d.logDelivery(ev, idPart, "", "", log.DecisionNoRule, "")
		return
	}

	var (
		payload  string
		rendered bool
	)
	for _, rcpt := range recipients {
		subject := ""
		if rcpt.Identity != nil {
			subject = rcpt.Identity.Subject()
		}

		reason, ok := rule.ReasonAllowed(rcpt.Identity, ev.Resource)
		if !ok {
			d.denied.Add(1)
			d.logger.Debug("recipient not authorized",
				"resource", ref,
				"subscription_id", idPart,
				"conn_id", rcpt.ConnID,
				"subject", subject)
			d.logDelivery(ev, idPart, rcpt.ConnID, subject, log.DecisionDenied, "")
			continue
		}

		if !rendered {
			var err error
			payload, err = render(sub, ev.Resource)
			if err != nil {
				d.logger.Warn("payload encoding failed",
					"resource", ref,
					"subscription_id", idPart,
					"error", err)
				return
			}
			rendered = true
		}

		if err := rcpt.Conn.SendText(payload); err != nil {
			d.sendFailures.Add(1)
			d.logger.Warn("send failed",
				"resource", ref,
				"subscription_id", idPart,
				"conn_id", rcpt.ConnID,
				"error", err)
			d.logDelivery(ev, idPart, rcpt.ConnID, subject, log.DecisionSendFailed, err.Error())
			continue
		}

		d.delivered.Add(1)
		d.logger.Debug("notification delivered",
			"resource", ref,
			"subscription_id", idPart,
			"conn_id", rcpt.ConnID,
			"reason", reason)
		d.logDelivery(ev, idPart, rcpt.ConnID, subject, log.DecisionDelivered, reason)
	}
}

// render encodes the resource per the subscription's payload format, or
// returns the "ping <id>" notice when the channel declares none.
func render(sub *resource.Subscription, r *resource.Resource) (string, error) {
	if sub.Channel.Payload == resource.PayloadNone {
		return wire.Ping(sub.IDPart()), nil
	}
	return resource.Encode(r, sub.Channel.Payload)
}

func (d *Dispatcher) logDelivery(ev resource.Event, idPart, connID, subject string, decision log.Decision, reason string) {
	log.Emit(d.plog, log.Event{
		ConnectionID:   connID,
		Direction:      log.DirectionOut,
		Layer:          log.LayerDispatch,
		Category:       log.CategoryDelivery,
		Subject:        subject,
		SubscriptionID: idPart,
		Delivery: &log.DeliveryEvent{
			Resource:  ev.Reference().String(),
			Operation: ev.Operation.String(),
			Decision:  decision,
			Reason:    reason,
		},
	})
}

package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"dca-core/internal/events"
)

// Monitor watches the bus and feeds counters plus an alert sink.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	AlertFn func(string)
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	alerts, unsubAlerts := m.Bus.Subscribe(events.EventRiskAlert, 50)
	ticks, unsubTicks := m.Bus.Subscribe(events.EventPriceTick, 256)
	placed, unsubPlaced := m.Bus.Subscribe(events.EventOrderPlaced, 50)
	filled, unsubFilled := m.Bus.Subscribe(events.EventOrderFilled, 50)
	failed, unsubFailed := m.Bus.Subscribe(events.EventOrderFailed, 50)

	go func() {
		defer unsubAlerts()
		defer unsubTicks()
		defer unsubPlaced()
		defer unsubFilled()
		defer unsubFailed()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-alerts:
				if !ok {
					return
				}
				if m.Metrics != nil {
					m.Metrics.IncrementErrors()
				}
				if m.AlertFn != nil {
					m.AlertFn(formatAlert(msg))
				}
			case <-ticks:
				if m.Metrics != nil {
					m.Metrics.IncrementTicks()
				}
			case <-placed:
				if m.Metrics != nil {
					m.Metrics.IncrementOrdersPlaced()
				}
			case <-filled:
				if m.Metrics != nil {
					m.Metrics.IncrementOrdersFilled()
				}
			case <-failed:
				if m.Metrics != nil {
					m.Metrics.IncrementOrdersFailed()
				}
			}
		}
	}()
}

func formatAlert(msg any) string {
	stamp := time.Now().Format(time.RFC3339)
	if alert, ok := msg.(events.RiskAlert); ok {
		return fmt.Sprintf("[%s] %s %s: %s", stamp, alert.Severity, alert.Code, alert.Message)
	}
	return "[" + stamp + "] alert triggered"
}

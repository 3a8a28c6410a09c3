package pipeline

import (
	"log/slog"

	"github.com/apura-ai/apura/internal/bus"
	"github.com/apura-ai/apura/internal/model"
)

// Binding subscribes one module to one trigger event type.
type Binding struct {
	On     string
	Module Module
}

// Definition declares a variant's chain: the initial trigger event plus
// the ordered stage bindings. Definitions carry no state; a fresh bus is
// bound per run.
type Definition struct {
	Variant  model.Variant
	Trigger  string
	Bindings []Binding
}

// Definitions indexes chain definitions by variant.
type Definitions map[model.Variant]Definition

// NewDefinition builds a definition triggered by the variant's intake
// event.
func NewDefinition(variant model.Variant, bindings ...Binding) Definition {
	return Definition{Variant: variant, Trigger: variant.Trigger(), Bindings: bindings}
}

// Chain binds the first module to trigger and each following module to
// its predecessor's completion event, forming a linear chain.
func Chain(trigger string, modules ...Module) []Binding {
	bindings := make([]Binding, 0, len(modules))
	on := trigger
	for _, m := range modules {
		bindings = append(bindings, Binding{On: on, Module: m})
		on = model.Completed(m.Name())
	}
	return bindings
}

// Bind registers every stage adapter on b in declaration order, then the
// terminal observer on the chain's visible endpoints. Registration order
// is delivery order, so stages sharing a trigger run in the order they
// were declared.
func (d Definition) Bind(b *bus.Bus, logger *slog.Logger, onTerminal bus.Handler) {
	for _, bd := range d.Bindings {
		adapter := NewAdapter(bd.Module, b, logger)
		b.Subscribe(bd.On, adapter.Handle)
	}
	if onTerminal == nil {
		return
	}
	for _, eventType := range d.TerminalEvents() {
		b.Subscribe(eventType, onTerminal)
	}
}

// TerminalEvents lists the event types that end a run visibly: the final
// binding's completion event plus every stage's failure event. An
// intermediate completion with no subscriber still terminates a chain,
// silently; these are the endpoints worth observing.
func (d Definition) TerminalEvents() []string {
	var events []string
	if len(d.Bindings) > 0 {
		last := d.Bindings[len(d.Bindings)-1].Module
		events = append(events, model.Completed(last.Name()))
	}
	seen := make(map[string]bool, len(d.Bindings))
	for _, bd := range d.Bindings {
		failed := model.Failed(bd.Module.Name())
		if !seen[failed] {
			seen[failed] = true
			events = append(events, failed)
		}
	}
	return events
}

package kokia

import "go.opentelemetry.io/otel/attribute"

// This file contains semantic conventions for graph-export reporting.

const (
	// Value for the `service.namespace` resource key. ExportSpans emits
	// span attributes only and does not attach a resource itself.
	KokiaServiceNamespace = "kokia"

	KokiaInstrumentationName = "kokia"
)

const (
	// The stable TaskKey identity of the task this span represents,
	// rendered as its TaskId address.
	KokiaTaskID = attribute.Key("kokia.task.id")

	// The resolved generator type name, when known.
	KokiaTaskType = attribute.Key("kokia.task.type")

	// True if this task had no inferable parent at first entry
	// (spec.md §4.7, the Rooted flag).
	KokiaTaskRoot = attribute.Key("kokia.task.root")

	KokiaTaskCompleted = attribute.Key("kokia.task.completed")

	// The most recently observed discriminant (suspend point) value.
	KokiaTaskDiscriminant = attribute.Key("kokia.task.discriminant")

	// The (parent, child, callsite) edge this span's parent/child
	// relationship was derived from.
	KokiaEdgeCallsite = attribute.Key("kokia.edge.callsite")

	// True once the edge's child reached readiness.
	KokiaEdgeCompleted = attribute.Key("kokia.edge.completed")

	// The SessionID namespacing this export (spec.md §3.1).
	KokiaSessionID = attribute.Key("kokia.session.id")
)

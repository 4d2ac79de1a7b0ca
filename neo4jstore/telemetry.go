package neo4jstore

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/learking/pathsampling/neo4jstore")

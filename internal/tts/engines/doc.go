// Package engines contains the speech synthesizers used by the pipeline.
// CartesiaEngine talks to the Cartesia HTTP API; MockEngine renders
// deterministic audio offline for tests and dry runs.
package engines

// Package loom learns deterministic workflows from the execution traces
// of LLM agent systems and routes live traffic between them.
//
// Agent loops solve the same query shapes over and over, paying oracle
// prices for work that has become routine. Loom watches the successful
// traces, and once a query fingerprint has accumulated enough of them,
// mines the stable task sequence out of the noise and compiles it into
// a verified state graph that replays the workflow without the oracle.
//
// The pipeline per fingerprint:
//
//   - Align: successful traces are aligned as task sequences with a
//     dynamic-programming edit distance whose substitution cost comes
//     from input/output schema overlap (pkg/align). Gaps pad every
//     trace to a shared set of columns.
//
//   - Extract: each aligned column votes. Tasks present in at least 80%
//     of traces become nodes (required above 90%), disagreeing columns
//     become branch points with mined guard predicates, and varying
//     input fields become variable regions (pkg/consensus). A
//     confidence score blends alignment quality, node agreement and
//     sample size.
//
//   - Compile: the consensus pattern becomes a state graph — input
//     validation, task states with error policies, choice states with
//     expr guards, a single end state — plus input/output contracts
//     inferred from the traces and a draft-07 JSON Schema for the
//     validation state (pkg/compile).
//
//   - Verify: structural checks gate deployment: resolvable start,
//     exactly one reachable terminal, full reachability, no cycles, and
//     the confidence threshold (pkg/verify). Nothing unverified is ever
//     persisted.
//
//   - Route: a Thompson-sampling bandit chooses per query between the
//     exact-response cache, the synthesized workflow and the fallback
//     oracle, sampling each arm's Beta posterior and feeding outcomes
//     back (pkg/router, pkg/resolve).
//
// Mining runs are driven by pkg/trigger (trace-ingested events on a
// watermill bus, or interval sweeps) and orchestrated by pkg/miner.
// Persistence lives behind pkg/store with SQLite, Redis and in-memory
// implementations. The loomd command wires it all together.
package loom

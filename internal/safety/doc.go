// Package safety documents the threat model the admission pipeline (package
// gate) and its supporting packages defend against. It holds no executable
// code of its own: every mitigation named here lives in the package that
// enforces it, listed alongside each threat.
//
// gatekeeper brokers every write an AI coding agent makes to a workspace.
// Unlike a single hardened binary, the threats here assume the agent itself
// is untrusted input: every argument it supplies — a path, a plan hash, a
// role header, a bootstrap signature — is adversarial until a gate proves
// otherwise.
//
// # Threat Model
//
// T1 - Path Traversal: an agent-supplied path could escape the workspace
// root via ".." sequences, an absolute path pointing elsewhere, or a
// symlink chain planted by an earlier write. Mitigated by
// internal/pathauth.Authority, which resolves every path against the
// locked root, rejects lexical escapes before touching the filesystem, and
// re-resolves symlinks along the deepest existing ancestor so a
// not-yet-created file cannot be pre-staged to redirect a later write.
//
// T2 - Plan Authority Forgery: an agent could cite a plan hash it was never
// granted, or one whose status or scope no longer covers the target path.
// Mitigated by G5 in internal/gate.Gate.Write (plan.Registry.Lookup,
// IsApproved, InScope), which fails closed on any miss, stale status, or
// out-of-scope path rather than trusting the caller's assertion.
//
// T3 - Preflight Command Injection: if agent-controlled text reached the
// preflight command's argument list, a post-write check could turn into
// arbitrary code execution. Mitigated by internal/config.PreflightConfig
// fixing the command and its arguments at process launch
// (operator-controlled, never agent-supplied) and
// internal/preflight.Runner invoking it via exec.CommandContext with a
// fixed argv, never a shell.
//
// T4 - Content Policy Evasion: an agent could submit content a human
// reviewer would reject — unconditional-pass test doubles, erased error
// handling, simulated outcomes — disguised to pass a superficial scan.
// Mitigated by internal/policy's two-phase evaluation (textual regex scan
// plus tree-sitter structural AST checks for empty handlers and
// always-true auth functions), since a purely textual scan alone is known
// to miss semantically equivalent rewrites.
//
// T5 - Audit Tamper: a compromised or buggy write path could leave the
// audit log silently incomplete or rewritten, hiding what actually
// happened. Mitigated by internal/audit's hash-chained append-only log
// (entry_hash derived from canonical JSON plus the previous entry's hash)
// and internal/replay.VerifyWorkspaceIntegrity, which recomputes the chain
// independently of the writer that produced it.
//
// T6 - Role-Header Forgery: a synthesized artifact-role header
// (executable/infrastructure/documentation) could be hand-crafted by an
// agent to misrepresent a file's declared role to a later reader.
// Mitigated by G6 in internal/gate (SynthesizeRoleHeader/ParseRoleHeader)
// restricting synthesis to a fixed compatibility matrix and round-tripping
// the synthesized header back through the parser before accepting it.
//
// T7 - Bootstrap Replay: a captured bootstrap request (payload, MAC) could
// be replayed later, or against a different repository, to seed a
// registry with content the original signer never approved for that
// target. Mitigated by internal/bootstrap.Verify's freshness window (the
// five-minute bound on payload timestamp) and constant-time MAC
// comparison, plus Registry.CompleteBootstrap's one-shot
// bootstrap_enabled flag that the registry itself disables atomically on
// first success.
//
// T8 - Concurrent Write Clobbering: two callers racing to write the same
// path could silently overwrite one another's change without either
// noticing. Mitigated by G3 in internal/gate (the optional previous_hash
// precondition, compared against the current on-disk content's hash
// before any mutation is attempted) and G8's atomic rename commit, which
// guarantees a reader never observes a torn file regardless of how many
// writers are mid-flight.
//
// # Design Principles
//
// Fail closed: every gate that cannot prove a request is authorized
// rejects it; no gate has a permissive default for missing or ambiguous
// input.
//
// No partial effects: a rejection at any gate before G8 leaves the
// filesystem untouched; a rejection at G9 or G10 reverts G8's write, so a
// failed request is never half-applied.
//
// Structured failure, not swallowed failure: every rejection carries a
// stable code, phase, and optional invariant id (internal/gkerrors); no
// error crosses the tool boundary as a bare string or a stack trace.
package safety

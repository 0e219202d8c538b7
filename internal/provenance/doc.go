// Package provenance captures where an experiment came from: the
// version-control revision of the working copy and the source text of the
// function that started the run.
//
// Everything here is best-effort. Probes return ok=false or "" instead of
// errors so tracking never interrupts the workload it records.
package provenance

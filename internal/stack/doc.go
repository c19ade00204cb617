// Package stack implements the lifecycle actions of osss-compose: up, down,
// recreate, rebuild, status, cleanup and logs, per profile or per service.
//
// Every action follows the same shape. The target is resolved to a service
// set, the project's containers are listed by compose label, and Diff
// computes a Plan against that listing. Only containers whose service is in
// the target's scope are ever touched, so stopping one profile leaves the
// others running. Nothing is cached between invocations; running an action
// twice converges to the same state.
package stack

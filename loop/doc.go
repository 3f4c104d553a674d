// Package loop drives simulations tick by tick.
//
// A Driver owns one Simulation and moves through Idle → Running → (Paused ⇄ Running) → Idle.
// Reset, Reload and an exhausted iteration budget all return it to Idle. Ticks are scheduled
// through a Scheduler so tests can use ManualScheduler and advance a virtual clock instead of
// sleeping; production code uses TimerScheduler.
//
// Every tick runs the simulation step and publishes the resulting snapshot before the next
// tick is scheduled, so at most one tick is pending per driver.
package loop

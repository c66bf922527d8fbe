// Package autosync keeps git-backed context projects in step with their
// upstream remotes.
//
// A Coordinator owns the check timer and the set of projects with pending
// updates. Each cycle lists the enabled, git-backed projects, checks them
// concurrently, and then either pulls (auto-merge) or only records and
// notifies (notify-only). At most one cycle runs at a time: a trigger that
// arrives while a cycle is in flight is coalesced and returns false.
//
// Lifecycle:
//
//	Stopped --Start--> Idle --tick/trigger--> Checking --> Idle
//	   ^                                                    |
//	   +------------------------Stop------------------------+
//
// Stop does not abort an in-flight cycle. The cycle finishes, notices that
// the coordinator generation changed, and discards its results along with
// its conflict notices. A trigger that arrives while such a cycle holds the
// slot is queued and runs once the slot is released.
package autosync

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations of the dispatch collaborators for testing.
// Provides predictable, controllable behavior: recorded writes, scripted
// reads, injected failures and blocking hooks.
package fake

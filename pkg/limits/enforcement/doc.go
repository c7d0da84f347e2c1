// Package enforcement decides what happens to a request that breached a
// limit.
//
// ActionBlock (the default) turns the breach into a denial. ActionAlert
// runs the limits in shadow mode: the breach is reported but the request
// proceeds, which lets operators observe new limits before enforcing them.
package enforcement

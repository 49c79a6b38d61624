// Package graceful wraps command outcomes with the context they ran in.
//
// Errors become a ContextError carrying a gRPC code and a wire reason derived
// from the error kind; successes become a SuccessContext. The socket gateway
// turns both into reply frames, and the gRPC health surface uses
// ToStatusError.
package graceful

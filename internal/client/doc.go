// Package client talks to the local API of a running smartrelay daemon.
//
// It is used by the status, on, off, toggle and watch commands and by the
// MCP tool server.
//
// # Usage Example
//
//	c := client.NewClient("192.168.4.16", 8080)
//
//	state, err := c.SetState(ctx, true)
//	if err != nil {
//	    fmt.Println(client.GetShortErrorMessage(err))
//	    fmt.Println(client.GetTroubleshootingHint(err))
//	    return err
//	}
//	fmt.Println(state.State.On, state.Pending)
//
// # Retries
//
// Idempotent requests (health, get state, set state) are retried on network
// errors and 5xx responses, with exponential backoff. Toggle is sent once:
// repeating it could flip the relay twice.
//
// # Errors
//
// Every failure is an *Error carrying an ErrorType. Use the Is* helpers to
// branch on the category and GetShortErrorMessage / GetTroubleshootingHint
// for user-facing text.
package client

/*
Package client implements the unprivileged side of the Palisade control
protocol. It dials the daemon's local endpoint (named pipe on Windows, unix
socket elsewhere), sends one command at a time and surfaces interim progress
frames while waiting for the terminal response.

Typed wrappers cover every command:

	c := client.New(client.Options{})
	defer c.Close()

	state, err := c.GetState(ctx)
	if err != nil {
		return err
	}

Long-running commands accept a progress callback:

	result, err := c.Apply(ctx, wire.ApplyPayload{All: true}, func(p *wire.Progress) {
		fmt.Printf("%3d%% %s\n", p.Percent, p.Message)
	})

A failure response comes back as a *CommandError carrying the daemon's wire
errors. When the daemon persisted partial work before failing, the partial
result is returned alongside the error.
*/
package client

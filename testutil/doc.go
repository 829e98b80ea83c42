/*
Package testutil provides helpers for running a whole group of parties inside
one test.

	chans := testutil.LocalChannels(4)
	err := testutil.RunParties(ctx, chans, func(ctx context.Context, ch network.Channel) error {
	    _, err := protocol.DeCommit(ctx, ch, shards[ch.PartyID()], rows[ch.PartyID()])
	    return err
	})

LoopbackHosts and ConnectLoopback do the same over real TCP sockets on
127.0.0.1.
*/
package testutil

// Package attachment recovers files sent through DLT file transfer
// (DLT-FT).
//
// A transfer is a sequence of verbose info-level log frames. A start
// message (FLST) announces the file id, name, size, creation date and
// packet count. Data messages (FLDA) carry numbered raw chunks and an end
// message (FLFI) closes the transfer. Every message is framed by its tag
// as the first and the last argument.
//
// A Scanner is fed decoded frames, usually through the ingest pipeline's
// frame tap, and yields the reassembled attachments; Extract writes them to
// a directory:
//
//	sc := attachment.NewScanner()
//	p := ingest.NewPipeline(ingest.Config{Tap: sc.Process})
//	...
//	files := sc.Attachments()
//	n, err := attachment.Extract(ctx, dir, files, attachment.Names(files, true))
package attachment

// Package notify renders and delivers account emails.
//
// The Engine talks to a [Sender]. Senders in this package:
//
//   - [Recorder] renders into memory, for tests and local development.
//   - [SMTPSender] renders and submits over SMTP.
//   - [QueueSender] enqueues an asynq task; a [Worker] consumes it and hands
//     the email to another Sender.
//
// Rendering goes through a [Composer], which selects a locale template and asks
// the metadata router for links and headers.
package notify

// Command server runs the WhatsApp bot backend: session persistence
// and recovery, the command admission queue, and the operational
// dashboard API.
package main

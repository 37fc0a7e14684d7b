// Command dlqd runs the download queue daemon in the foreground. It is
// equivalent to `dlq daemon run` for service managers that expect a
// dedicated binary.
package main

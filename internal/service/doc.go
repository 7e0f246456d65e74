// Package service contains the application use cases. BatchService accepts
// prompt lists, runs each as a background session through the batch
// scheduler, answers status queries from the live registry or the archive,
// and produces download bundles.
package service

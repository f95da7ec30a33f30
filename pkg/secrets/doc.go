// Package secrets resolves ${secret:name} references in configuration
// values.
//
// Providers are consulted in order. The environment provider maps
// "git-token" to MEDIATOR_SECRET_GIT_TOKEN; the file provider reads
// <dir>/git-token, which must be mode 0600 or 0400. Resolved values are
// cached for a configurable TTL.
//
//	r := secrets.NewResolver(5*time.Minute, logger,
//	    secrets.NewEnvProvider(secrets.DefaultEnvPrefix),
//	    fileProvider,
//	)
//	token, err := r.Resolve(ctx, cfg.Engine.Git.Token)
package secrets

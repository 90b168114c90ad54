// Package client is a Go client for the Arrowhead Framework core services.
//
// It lets an application system register itself and its services with the
// Service Registry, discover providers through the Orchestrator, manage
// intra-cloud rules in the Authorization system, and bind to the provider it
// was given over HTTP or MQTT.
//
// # Secure and insecure mode
//
// A client is secure when its certificate context holds a certificate, key
// and authority. The mode decides the default interface it asks for and
// which of a provider's interfaces it will bind to:
//
//	cc, err := certs.New(certs.Material{
//	    Certificate:          "certs/consumer.crt",
//	    Key:                  "certs/consumer.key",
//	    CertificateAuthority: "certs/ca.crt",
//	})
//	c, err := client.New(system, urls, client.WithCertificates(cc))
//
// # Bootstrapping
//
// Bootstrap polls the core services' echo endpoints until they answer and
// then registers the system. The wait is bounded by the context:
//
//	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
//	defer cancel()
//	if err := c.Bootstrap(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Consuming a service
//
// Orchestrate selects the first match and binds every interface of it that
// suits the client's mode:
//
//	res, err := c.Orchestrate(ctx, "temperature", "")
//	if errors.Is(err, client.ErrNoProvider) {
//	    // nothing offers it yet
//	}
//	if res.Binding.HTTP != nil {
//	    var reading Reading
//	    err = res.Binding.HTTP.Call(ctx, http.MethodGet, "", nil, &reading)
//	}
//
// A provider whose interfaces all mismatch the client's mode yields a
// result with an unbound Binding rather than an error. Check
// res.Binding.Bound().
//
// # Providing a service
//
//	err := c.RegisterService(ctx, "temperature", "temperature", client.InterfaceHTTPInsecureJSON)
//	defer c.UnregisterService(context.Background(), "temperature")
package client

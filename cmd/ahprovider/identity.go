package main

import (
	"crypto/x509"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxConsumer = "arrowhead_consumer"

// requireConsumerCert rejects requests without a client certificate and
// stores the consumer's system name under "arrowhead_consumer". The TLS
// layer has already verified the chain against the cloud's authority.
func requireConsumerCert() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.TLS == nil || len(c.Request.TLS.PeerCertificates) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"errorMessage": "client certificate required",
			})
			return
		}
		name := systemNameFromCert(c.Request.TLS.PeerCertificates[0])
		if name == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"errorMessage": "client certificate has no common name",
			})
			return
		}
		c.Set(ctxConsumer, name)
		c.Next()
	}
}

// systemNameFromCert returns the first label of the certificate's common
// name. Arrowhead names system certificates <system>.<cloud>.<operator>...
func systemNameFromCert(cert *x509.Certificate) string {
	name, _, _ := strings.Cut(cert.Subject.CommonName, ".")
	return name
}

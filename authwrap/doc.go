// Package authwrap defines the pluggable auth+wrap contract the transport
// layer delegates to for HTTP authentication and WSMan message encryption.
//
// No mechanism lives in this package. Concrete SPNEGO/NTLM/Kerberos/CredSSP
// providers are external collaborators; this package only names the
// boundary transport/http.go calls across.
package authwrap

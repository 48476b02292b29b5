// Package modreg enumerates the command modules available to the ego
// dispatcher and exposes their metadata.
//
// Module implementations are statically registered against validated names;
// discovery additionally scans the install root so externally shipped module
// payloads appear in listings. Module presence and metadata presence are
// independent facts: a module without a modules-info document simply yields a
// zero-value descriptor.
package modreg

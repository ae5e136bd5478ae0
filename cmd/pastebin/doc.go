// Command pastebin serves pastes over raw TCP. Each connection gets exactly
// one request and one response:
//
//	POST /       stores the request body and responds with its identifier
//	GET /<id>    responds with the stored body
//	GET /        responds with usage text, or index.html from assets_dir
//
// Configuration is read from a relaxed JSON file, by default
// $HOME/lib/pastebin/pastebin.config. A missing file means all defaults. An
// example:
//
//	{
//		address: ":8000"
//		strategy: "hash"
//		decoding: "lossy"
//		blobs: {
//			type: "s3"
//			region: "eu-west-1"
//			bucket: "pastes"
//			cache_path: "$HOME/lib/pastebin/cache"
//			compression: "zstd"
//		}
//	}
//
// With the "random" strategy, identifiers are random UUIDs mapped to storage
// keys by the configured index. With "hash", the identifier is the 64-bit
// xxhash of the content and doubles as the storage key, so no index is used.
package main // import "github.com/Mokuzzai/pastebin/cmd/pastebin"

// Package semcache provides an embedded Go client for the semantic cache:
// store query/response pairs and answer later queries that are semantically
// close enough, without going through the HTTP API.
//
//	client, _ := semcache.New(ctx,
//	    semcache.WithRedis("localhost:6379", ""),
//	    semcache.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	_ = client.Save(ctx, "user-1", "capital of france", "Paris")
//
//	d, _ := client.Lookup(ctx, "user-1", "what is the capital of france?")
//	if d.Hit {
//	    fmt.Println(d.Payload, d.Score)
//	}
//
// Entries are isolated per scope: a lookup only ever sees entries saved under
// the same scope.
package semcache
